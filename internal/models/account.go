package models

// Account holds one brokerage account's identity and run configuration.
type Account struct {
	ShortCode  string `yaml:"short_code" json:"short_code"`
	BrokerName string `yaml:"broker" json:"broker"`
	ClientID   string `yaml:"client_id" json:"client_id"`
	AppKey     string `yaml:"app_key" json:"app_key"`
	AppSecret  string `yaml:"app_secret" json:"app_secret"`
	// Multiple scales every strategy's lot count for this account.
	Multiple int64  `yaml:"multiple" json:"multiple"`
	AlgoType string `yaml:"algo_type" json:"algo_type"`
	// TickerURL, when set, points at the broker's websocket feed.
	// Empty means the simulated in-process feed.
	TickerURL string `yaml:"ticker_url" json:"ticker_url"`
}
