package contxt

import "maps"

// Built-in audience names.
const (
	AudienceContxtAuth  = "contxtAuth"
	AudienceCoordinator = "coordinator"
	AudienceFacilities  = "facilities"
	AudienceHealth      = "health"
	AudienceBus         = "bus"
	AudienceNionic      = "nionic"
)

// Environments present in the built-in audience table.
const (
	EnvProduction = "production"
	EnvStaging    = "staging"
)

// Audience is a named backend service plus what is needed to call it.
type Audience struct {
	Name     string `json:"name" yaml:"name"`
	ClientID string `json:"clientId,omitempty" yaml:"clientId,omitempty"`
	Host     string `json:"host" yaml:"host"`

	// WebSocket is the streaming endpoint, set only for audiences that have one.
	WebSocket string `json:"webSocket,omitempty" yaml:"webSocket,omitempty"`

	// NoAuth marks an audience whose requests carry no bearer token. Its
	// ClientID is empty and it is left out of the token exchange.
	NoAuth bool `json:"noAuth,omitempty" yaml:"noAuth,omitempty"`
}

// AudienceTable maps an audience name to its entry per environment.
type AudienceTable map[string]map[string]Audience

// DefaultAudiences returns a copy of the built-in audience table.
func DefaultAudiences() AudienceTable {
	table := make(AudienceTable, len(defaultAudiences))
	for name, envs := range defaultAudiences {
		table[name] = maps.Clone(envs)
	}
	return table
}

var defaultAudiences = AudienceTable{
	AudienceContxtAuth: {
		EnvProduction: {
			ClientID: "75wT048QcpE7ujwBJPPjr263eTHl4gEX",
			Host:     "https://contxtauth.com",
		},
		EnvStaging: {
			ClientID: "dn4MaocJFdKtsBy9sFFaTeuJWL1nt5xu",
			Host:     "https://contxt-auth-service.staging.ndustrial.io",
		},
	},
	AudienceCoordinator: {
		EnvProduction: {
			ClientID: "8qY2xJob1JAxhmVhIDLCNnGriTM9bct8",
			Host:     "https://contxt-api.ndustrial.io",
		},
		EnvStaging: {
			ClientID: "qGzdTXcmB57zlTp86rYsivG9qEss1lbF",
			Host:     "https://contxt-api.staging.ndustrial.io",
		},
	},
	AudienceFacilities: {
		EnvProduction: {
			ClientID: "SgbCopArnGMa9PsRlCVUCVRwxocntlg0",
			Host:     "https://facilities.api.ndustrial.io",
		},
		EnvStaging: {
			ClientID: "xXnEs2l8fc4rL7BrzNVhW2ZnzBhTLXnF",
			Host:     "https://facilities-staging.api.ndustrial.io",
		},
	},
	AudienceHealth: {
		EnvProduction: {
			ClientID: "6uaQIV1KnnWhXiTm09iGDvy2aQaz2xVI",
			Host:     "https://health.api.ndustrial.io",
		},
		EnvStaging: {
			ClientID: "6uaQIV1KnnWhXiTm09iGDvy2aQaz2xVI",
			Host:     "https://health-staging.api.ndustrial.io",
		},
	},
	AudienceBus: {
		EnvProduction: {
			ClientID:  "jrMMuYEN2VvNQnWsB4b4ZhRWnDJ8tOpX",
			Host:      "https://bus.ndustrial.io",
			WebSocket: "wss://bus.ndustrial.io",
		},
		EnvStaging: {
			ClientID:  "vhGzq4VL1o1iT7YUXpIoM8dSq8rqhRQj",
			Host:      "https://bus-staging.ndustrial.io",
			WebSocket: "wss://bus-staging.ndustrial.io",
		},
	},
	AudienceNionic: {
		EnvProduction: {
			ClientID: "iznTb30Sfp2Jpaf398I5DN6MyPuDCftA",
			Host:     "https://nionic.api.ndustrial.io",
		},
		EnvStaging: {
			ClientID: "vMFqqAUqIUgg9bUJtoGGtHfYeJTdZNon",
			Host:     "https://nionic-staging.api.ndustrial.io",
		},
	},
}
