package config

// APIConfig enables the HTTP API of the fleet.
type APIConfig struct {
	// Addr is the listen address, e.g. ":8080". Empty disables the API.
	Addr string `json:"addr"`
	// Token, when set, is required as a bearer token on every request.
	Token string `json:"token"`
	// Buffer is the capacity of the HTTP command queue.
	Buffer int `json:"buffer"`
}

// Enabled reports whether the API should be served.
func (c APIConfig) Enabled() bool { return c.Addr != "" }
