package internal

// Option adjusts how Run assembles the graft server.
type Option func(*application)

type application struct {
	config *Config
}

// WithConfig runs the server with cfg instead of the built-in defaults.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}
