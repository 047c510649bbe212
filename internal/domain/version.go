package domain

// SetVersion records the store etag a document was read at.
func (c *Child) SetVersion(v int64) { c.Version = v }

// SetVersion records the store etag a document was read at.
func (g *Garden) SetVersion(v int64) { g.Version = v }

// SetVersion records the store etag a document was read at.
func (p *Parent) SetVersion(v int64) { p.Version = v }

// SetVersion records the store etag a document was read at.
func (p *Person) SetVersion(v int64) { p.Version = v }
