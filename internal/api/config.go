package api

type Config struct {
	// AuthToken, when set, is required as a bearer token or ?token= on every
	// request.
	AuthToken  string
	CORSOrigin string

	SubscriberBuffer int // per websocket client
	MaxImportBytes   int64
}

func (c Config) withDefaults() Config {
	if c.CORSOrigin == "" {
		c.CORSOrigin = "*"
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 64
	}
	if c.MaxImportBytes <= 0 {
		c.MaxImportBytes = 1 << 20
	}
	return c
}
