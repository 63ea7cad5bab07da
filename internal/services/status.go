package services

import (
	"github.com/storefront/ecommerce-go-app/internal/auth"
	"github.com/storefront/ecommerce-go-app/internal/models"
)

// transitions is the order status state machine. Statuses without an entry
// are terminal.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPending:  {models.StatusShipping, models.StatusCancelled},
	models.StatusShipping: {models.StatusCompleted},
}

// CanTransition reports whether the state machine has an edge from -> to.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transitionAction is the policy action needed to move an order into status to.
// Cancelling is self-service, every other move is fulfilment.
func transitionAction(to models.OrderStatus) auth.Action {
	if to == models.StatusCancelled {
		return auth.ActionOrderCancel
	}
	return auth.ActionOrderFulfil
}

// transitionAllowed combines the state machine with the policy: the edge must
// exist and the actor must hold the action it requires.
func transitionAllowed(actor auth.Actor, ownerID int64, from, to models.OrderStatus) bool {
	if !CanTransition(from, to) {
		return false
	}
	res := auth.Resource{Kind: auth.ResourceOrder, OwnerID: ownerID}
	return auth.Decide(actor, res, transitionAction(to)) == auth.Allow
}
