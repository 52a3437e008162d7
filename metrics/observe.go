package metrics

import (
	"strconv"

	"github.com/tolelom/tolmarket/events"
)

// Observe keeps the marketplace collectors in step with committed events.
// Gauges start from the supplied counts so a restarted engine reports the
// persisted book rather than zero.
func Observe(em *events.Emitter, openOrders, activeAgreements uint64) {
	OpenOrders.Set(float64(openOrders))
	ActiveAgreements.Set(float64(activeAgreements))

	em.Subscribe(events.EventOrderListed, func(events.Event) { OpenOrders.Inc() })
	em.Subscribe(events.EventOrderCancelled, func(events.Event) { OpenOrders.Dec() })
	em.Subscribe(events.EventOrderSold, func(ev events.Event) {
		OpenOrders.Dec()
		signed, _ := ev.Data["signed"].(bool)
		SalesTotal.WithLabelValues(strconv.FormatBool(signed)).Inc()
		if price, ok := ev.Data["price"].(uint64); ok {
			SettlementVolume.Add(float64(price))
		}
		if cut, ok := ev.Data["platform_cut"].(uint64); ok {
			PlatformRevenue.WithLabelValues("sale").Add(float64(cut))
		}
	})
	em.Subscribe(events.EventPopularityBoosted, func(ev events.Event) {
		if cost, ok := ev.Data["cost"].(uint64); ok {
			PlatformRevenue.WithLabelValues("boost").Add(float64(cost))
		}
	})
	em.Subscribe(events.EventSigningApproved, func(events.Event) { ActiveAgreements.Inc() })
	em.Subscribe(events.EventSigningEnded, func(ev events.Event) {
		ActiveAgreements.Dec()
		if penalty, ok := ev.Data["penalty"].(uint64); ok && penalty > 0 {
			PlatformRevenue.WithLabelValues("penalty").Add(float64(penalty))
		}
	})
}
