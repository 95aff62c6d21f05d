package httpdto

// AdminLoginRequest is used for POST /admin/login.
type AdminLoginRequest struct {
	Password string `json:"password" binding:"required"`
}

type AdminLoginResponse struct {
	Token string `json:"token"`
}

// PurgeAgentResponse reports how many messages a purge removed.
type PurgeAgentResponse struct {
	Address string `json:"address"`
	Purged  int    `json:"purged"`
}

// RebuildIndexResponse reports the rebuilt inbox counters.
type RebuildIndexResponse struct {
	Address     string `json:"address"`
	Total       int    `json:"total"`
	UnreadCount int    `json:"unreadCount"`
}
