package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *DocHostError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *DocHostError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *DocHostError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Lookup errors

func NotFound(kind string, id int64) *DocHostError {
	return New(CategoryNotFound, SeverityError, kind+" not found").
		WithContext("kind", kind).
		WithContext("id", id)
}

func StorageError(operation string, cause error) *DocHostError {
	return Wrap(cause, CategoryStorage, SeverityError, "storage operation failed").
		WithContext("operation", operation)
}

// Build pipeline errors

func BuildFailed(stage string, cause error) *DocHostError {
	return Wrap(cause, CategoryBuild, SeverityFatal, "build failed").
		WithContext("stage", stage)
}

func ProjectBuildsSkipped(slug string) *DocHostError {
	return New(CategoryBuild, SeverityWarning, "builds for this project are temporarily disabled").
		WithContext("project", slug)
}

func WorkspaceError(operation string, cause error) *DocHostError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation)
}

// VCS errors

func VCSCheckoutError(repo string, cause error) *DocHostError {
	return Wrap(cause, CategoryVCS, SeverityFatal, "repository checkout failed").
		WithContext("repository", repo)
}

// Notification errors

func NotificationFailed(channel string, cause error) *DocHostError {
	return WrapRetryable(cause, CategoryNotification, SeverityError, "notification delivery failed").
		WithContext("channel", channel)
}

func NetworkTimeout(url string, cause error) *DocHostError {
	return WrapRetryable(cause, CategoryNetwork, SeverityWarning, "network timeout").
		WithContext("url", url)
}

// Internal errors

func InternalError(message string, cause error) *DocHostError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
