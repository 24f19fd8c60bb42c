package models

// EmailHook sends a build email to Email on build completion.
type EmailHook struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Email     string `json:"email"`
}

// WebHook POSTs a build payload to URL on build completion.
type WebHook struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	URL       string `json:"url"`
}
