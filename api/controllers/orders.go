package controllers

import (
	"net/http"

	"github.com/angelmondragon/packfinderz-storefront/api/responses"
	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

type cancelOrderResponse struct {
	OrderID int64             `json:"orderId"`
	Status  enums.OrderStatus `json:"status"`
}

func CancelOrder(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := currentSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := int64Param(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := sess.Orchestrator.CancelOrder(r.Context(), orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cancelOrderResponse{OrderID: orderID, Status: enums.OrderStatusCancelled})
	}
}
