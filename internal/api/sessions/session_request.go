package api

type StartSessionRequest struct {
	Name        string `json:"name"`
	AgentName   string `json:"agent_name"`
	CompanyName string `json:"company_name"`
	Script      string `json:"script,omitempty"`
}

type StartSessionResponse struct {
	SessionID    string `json:"session_id"`
	Instructions string `json:"instructions"`
	Opening      string `json:"opening"`
}

type TurnRequest struct {
	Utterance string `json:"utterance"`
}
