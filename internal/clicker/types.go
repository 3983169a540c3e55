package clicker

// Result is the sidecar's answer to every run-* call.
type Result struct {
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

type restoreRequest struct {
	SteamID string `json:"steamid"`
	Growth  int    `json:"growth"`
	Hunger  int    `json:"hunger"`
	Thirst  int    `json:"thirst"`
	Health  int    `json:"health"`
}

type slayRequest struct {
	SteamID string `json:"steamid"`
}

type nutrientsRequest struct {
	SteamID string  `json:"steamid"`
	Prot    float64 `json:"prot"`
	Carb    float64 `json:"carb"`
	Lipid   float64 `json:"lipid"`
}
