package config

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Admins = append([]int64(nil), c.Admins...)
	if c.Storage != nil {
		st := *c.Storage
		cp.Storage = &st
	}
	if c.Loader.Cookies != nil {
		cp.Loader.Cookies = make(map[string]map[string]string, len(c.Loader.Cookies))
		for u, kv := range c.Loader.Cookies {
			inner := make(map[string]string, len(kv))
			for k, v := range kv {
				inner[k] = v
			}
			cp.Loader.Cookies[u] = inner
		}
	}
	cp.Chats = make([]Chat, len(c.Chats))
	for i, ch := range c.Chats {
		ch.Links = append([]LinkEntry(nil), ch.Links...)
		if ch.Links == nil {
			ch.Links = []LinkEntry{}
		}
		cp.Chats[i] = ch
	}
	return &cp
}
