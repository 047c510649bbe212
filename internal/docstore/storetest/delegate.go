package storetest

import (
	"go.uber.org/mock/gomock"

	"kindergarten/internal/docstore"
	"kindergarten/internal/docstore/mocks"
)

// Delegate makes every call on m fall through to real. Register failure
// expectations before calling Delegate: gomock tries expectations in the
// order they were declared, so a .Times(1) fault fires first and later calls
// reach the real store.
func Delegate(m *mocks.MockStore, real docstore.Store) {
	m.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(real.Get).AnyTimes()
	m.EXPECT().Find(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(real.Find).AnyTimes()
	m.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(real.Create).AnyTimes()
	m.EXPECT().Replace(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(real.Replace).AnyTimes()
	m.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(real.Update).AnyTimes()
	m.EXPECT().Delete(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(real.Delete).AnyTimes()
}
