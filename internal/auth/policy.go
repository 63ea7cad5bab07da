// Package auth holds the credential handling of the Authentication Gate and
// the single authorization policy consulted by every service.
package auth

import "github.com/storefront/ecommerce-go-app/internal/models"

// Actor is the authenticated caller of a request.
type Actor struct {
	UserID int64
	Role   models.Role
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// ResourceKind names the kind of entity an action targets.
type ResourceKind string

const (
	ResourceUser     ResourceKind = "user"
	ResourceCart     ResourceKind = "cart"
	ResourceOrder    ResourceKind = "order"
	ResourceCatalog  ResourceKind = "catalog"
	ResourceUserList ResourceKind = "user_list"
)

// Resource is the target of an authorization decision. OwnerID is the user
// owning the resource, zero for resources without an owner.
type Resource struct {
	Kind    ResourceKind
	OwnerID int64
}

// Action is what the actor wants to do with a resource.
type Action string

const (
	ActionRead        Action = "read"
	ActionUpdate      Action = "update"
	ActionDelete      Action = "delete"
	ActionCartWrite   Action = "cart_write"
	ActionOrderCreate Action = "order_create"
	ActionOrderCancel Action = "order_cancel"
	ActionOrderFulfil Action = "order_fulfil"
	ActionManage      Action = "manage"
	ActionChangeRole  Action = "change_role"
)

// Decision is the outcome of Decide.
type Decision bool

const (
	Allow Decision = true
	Deny  Decision = false
)

// selfService lists what a non-admin may do with resources they own.
var selfService = map[ResourceKind]map[Action]bool{
	ResourceUser: {
		ActionRead:   true,
		ActionUpdate: true,
	},
	ResourceCart: {
		ActionRead:      true,
		ActionCartWrite: true,
	},
	ResourceOrder: {
		ActionRead:        true,
		ActionOrderCreate: true,
		ActionOrderCancel: true,
	},
}

// Decide is the authorization policy of the service. Admins may do anything.
// Anyone may read the catalog. Everyone else is limited to the self-service
// actions on resources they own.
func Decide(actor Actor, res Resource, action Action) Decision {
	if actor.IsAdmin() {
		return Allow
	}
	if res.Kind == ResourceCatalog && action == ActionRead {
		return Allow
	}
	if actor.UserID == 0 || res.OwnerID != actor.UserID {
		return Deny
	}
	return Decision(selfService[res.Kind][action])
}
