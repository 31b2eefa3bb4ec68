package pipeline

import "github.com/stanstork/medequip-events/internal/event"

// Routes is the ordered consumer chain per category. Audit always runs
// first so that the trail exists even when later consumers fail.
type Routes map[event.Category][]Kind

func DefaultRoutes() Routes {
	full := []Kind{KindAudit, KindMetrics, KindAlerts, KindNotify}
	timeBound := []Kind{KindAudit, KindMetrics, KindAlerts, KindNotify, KindSchedule}
	return Routes{
		event.CategoryEquipment:   full,
		event.CategoryMaintenance: timeBound,
		event.CategoryCalibration: timeBound,
		event.CategoryContingency: timeBound,
		event.CategoryTraining:    timeBound,
		event.CategoryTicket:      timeBound,
		event.CategoryService:     {KindAudit, KindMetrics, KindNotify},
		event.CategoryArea:        {KindAudit, KindMetrics, KindNotify},
		event.CategoryAdmin:       full,
		event.CategoryUser:        full,
		event.CategoryDashboard:   {KindAudit, KindMetrics, KindAlerts},
		event.CategorySystem:      full,
	}
}

// For returns the chain for a category; unknown categories get audit only.
func (r Routes) For(category event.Category) []Kind {
	if kinds, ok := r[category]; ok {
		return kinds
	}
	return []Kind{KindAudit}
}
