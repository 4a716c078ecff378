package responses

type Message struct {
	Message string `json:"message"`
}

type Error struct {
	Error string `json:"error"`
}

type Session struct {
	Message   string `json:"message"`
	SessionId string `json:"session_id"`
}

type Log struct {
	Lines []string `json:"lines"`
}

type Version struct {
	Version string `json:"version"`
}
