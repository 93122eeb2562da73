// Package models contains domain types for forge-engine.
package models

import "time"

// CodeGenType identifies the generation strategy for an app.
type CodeGenType string

const (
	CodeGenTypeHTML       CodeGenType = "html"
	CodeGenTypeMultiFile  CodeGenType = "multi_file"
	CodeGenTypeVueProject CodeGenType = "vue_project"
)

// ValidCodeGenTypes contains all valid generation type values.
var ValidCodeGenTypes = []CodeGenType{
	CodeGenTypeHTML,
	CodeGenTypeMultiFile,
	CodeGenTypeVueProject,
}

// IsValidCodeGenType checks if the given type is valid.
func IsValidCodeGenType(t CodeGenType) bool {
	for _, v := range ValidCodeGenTypes {
		if v == t {
			return true
		}
	}
	return false
}

// AppStatus represents an app's position in the generation/deployment lifecycle.
// State machine:
//
//	initialized → generating → generated → deploying → deployed
//	                                                       ↓
//	                                                   generating (redeploy)
//
//	Any state can transition to: deleted (soft delete, terminal)
type AppStatus string

const (
	AppStatusInitialized AppStatus = "initialized"
	AppStatusGenerating  AppStatus = "generating"
	AppStatusGenerated   AppStatus = "generated"
	AppStatusDeploying   AppStatus = "deploying"
	AppStatusDeployed    AppStatus = "deployed"
	AppStatusDeleted     AppStatus = "deleted"
)

// ValidAppStatuses contains all valid status values.
var ValidAppStatuses = []AppStatus{
	AppStatusInitialized,
	AppStatusGenerating,
	AppStatusGenerated,
	AppStatusDeploying,
	AppStatusDeployed,
	AppStatusDeleted,
}

// IsValidAppStatus checks if the given status is valid.
func IsValidAppStatus(s AppStatus) bool {
	for _, v := range ValidAppStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsActive returns true while a session holds the app for exclusive work.
// A second session against an active app must be rejected, not queued.
func (s AppStatus) IsActive() bool {
	return s == AppStatusGenerating || s == AppStatusDeploying
}

// CanTransitionTo returns true if transitioning from this status to the target is valid.
func (s AppStatus) CanTransitionTo(target AppStatus) bool {
	// Deleted is terminal; nothing leaves it, but anything may enter it.
	if s == AppStatusDeleted {
		return false
	}
	if target == AppStatusDeleted {
		return true
	}

	switch s {
	case AppStatusInitialized:
		return target == AppStatusGenerating
	case AppStatusGenerating:
		return target == AppStatusGenerated
	case AppStatusGenerated:
		return target == AppStatusDeploying
	case AppStatusDeploying:
		return target == AppStatusDeployed
	case AppStatusDeployed:
		// Redeploy: further generation on an already published app.
		return target == AppStatusGenerating
	default:
		return false
	}
}

// App represents a user-described application being generated and deployed.
// DeployKey and DeployedTime are assigned together in a single update;
// DeployKey is globally unique, enforced by a unique index rather than a
// pre-check so concurrent deploys cannot race.
type App struct {
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	Cover        *string     `json:"cover,omitempty"`
	InitPrompt   string      `json:"init_prompt"`
	CodeGenType  CodeGenType `json:"code_gen_type"`
	DeployKey    *string     `json:"deploy_key,omitempty"`
	DeployedTime *time.Time  `json:"deployed_time,omitempty"`
	Priority     int         `json:"priority"`
	UserID       int64       `json:"user_id"`
	Status       AppStatus   `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	IsDelete     bool        `json:"-"`
}

// IsDeployed returns true once a deploy key has been assigned.
func (a *App) IsDeployed() bool {
	return a.DeployKey != nil && *a.DeployKey != ""
}
