package types

// DownloadRequest is the body of POST /api/download
type DownloadRequest struct {
	Website string `json:"website"`
	Token   string `json:"token"`
}

// DownloadResponse acknowledges an accepted download request
type DownloadResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}
