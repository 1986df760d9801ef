// Package access decides whether a principal may perform an action.
package access

import (
	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/models"
)

type Action string

const (
	ApplicationSubmit  Action = "application:submit"
	ApplicationTrack   Action = "application:track"
	ApplicationListOwn Action = "application:list_own"
	DocumentUpload     Action = "document:upload"
	StageQueue         Action = "stage:queue"
	StageStart         Action = "stage:start"
	StageApprove       Action = "stage:approve"
	StageReject        Action = "stage:reject"
	StatsView          Action = "stats:view"
	EstimationAccuracy Action = "estimation:accuracy"
	SearchApplications Action = "search:applications"
	NotificationRead   Action = "notification:read"
)

// Resource describes what the action touches. OwnerID is set for
// application-scoped actions and Stage for stage mutations.
type Resource struct {
	OwnerID string
	Stage   models.StageName
}

var allStages = []models.StageName{
	models.StageDocumentVerification,
	models.StagePoliceVerification,
	models.StageFinalApproval,
	models.StagePrinting,
	models.StageDispatch,
}

// roleActions lists what each role may do before ownership and stage
// scope are considered.
var roleActions = map[models.Role]map[Action]bool{
	models.RoleCitizen: {
		ApplicationSubmit:  true,
		ApplicationTrack:   true,
		ApplicationListOwn: true,
		DocumentUpload:     true,
		NotificationRead:   true,
	},
	models.RolePolice: {
		ApplicationTrack:   true,
		ApplicationListOwn: true,
		DocumentUpload:     true,
		StageQueue:         true,
		StageStart:         true,
		StageApprove:       true,
		StageReject:        true,
		SearchApplications: true,
		NotificationRead:   true,
	},
	models.RoleRPO: {
		ApplicationTrack:   true,
		ApplicationListOwn: true,
		DocumentUpload:     true,
		StageQueue:         true,
		StageStart:         true,
		StageApprove:       true,
		StageReject:        true,
		SearchApplications: true,
		NotificationRead:   true,
	},
	models.RoleAdmin: {
		ApplicationTrack:   true,
		ApplicationListOwn: true,
		StatsView:          true,
		EstimationAccuracy: true,
		SearchApplications: true,
		NotificationRead:   true,
	},
}

// Gate is the single capability check consulted before every operation.
type Gate struct {
	enforceOfficerScope bool
}

// NewGate returns a Gate. With enforceOfficerScope, Police Verification is
// actionable only by police and every other stage only by rpo; without it,
// any officer may act on any stage.
func NewGate(enforceOfficerScope bool) *Gate {
	return &Gate{enforceOfficerScope: enforceOfficerScope}
}

// Authorize returns nil or an ACCESS_DENIED error.
func (g *Gate) Authorize(p models.Principal, action Action, res Resource) error {
	if p.UserID == "" || !roleActions[p.Role][action] {
		return errors.NewAccessDeniedError(string(p.Role), string(action))
	}

	switch action {
	case ApplicationSubmit:
		if res.OwnerID != "" && res.OwnerID != p.UserID {
			return errors.NewAccessDeniedError(string(p.Role), string(action))
		}
	case ApplicationTrack, DocumentUpload:
		if !p.IsStaff() && res.OwnerID != p.UserID {
			return errors.NewAccessDeniedError(string(p.Role), string(action))
		}
	case StageStart, StageApprove, StageReject:
		if !g.inScope(p.Role, res.Stage) {
			return errors.NewAccessDeniedError(string(p.Role), string(action)+" on "+string(res.Stage))
		}
	}
	return nil
}

func (g *Gate) inScope(role models.Role, stage models.StageName) bool {
	for _, s := range g.StagesFor(role) {
		if s == stage {
			return true
		}
	}
	return false
}

// StagesFor lists the stages role may act on.
func (g *Gate) StagesFor(role models.Role) []models.StageName {
	if role != models.RolePolice && role != models.RoleRPO {
		return nil
	}
	if !g.enforceOfficerScope {
		return allStages
	}
	if role == models.RolePolice {
		return []models.StageName{models.StagePoliceVerification}
	}
	return []models.StageName{
		models.StageDocumentVerification,
		models.StageFinalApproval,
		models.StagePrinting,
		models.StageDispatch,
	}
}
