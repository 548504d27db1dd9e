package service

import (
	"time"

	"fare-deal-alerts/internal/model"
)

// stayCombinationCap bounds the stay lengths tried per outbound date so a
// wide max_stay_days setting cannot explode the number of searches.
const stayCombinationCap = 14

type datePair struct {
	outbound time.Time
	ret      time.Time
}

// datePairs generates the (outbound, return) combinations for one cycle:
// outbound dates from min_days_from_now to max_days_from_now stepped by
// date_step_days, each paired with every stay length from min_stay_days up
// to the capped max_stay_days, discarding returns past the horizon.
func (s *Service) datePairs(startedAt time.Time) []datePair {
	today := time.Date(startedAt.Year(), startedAt.Month(), startedAt.Day(), 0, 0, 0, 0, time.UTC)
	horizon := today.AddDate(0, 0, s.scan.MaxDaysFromNow)

	maxStay := s.scan.MaxStayDays
	if maxStay > stayCombinationCap {
		maxStay = stayCombinationCap
	}

	pairs := make([]datePair, 0)
	for outbound := today.AddDate(0, 0, s.scan.MinDaysFromNow); !outbound.After(horizon); outbound = outbound.AddDate(0, 0, s.scan.DateStepDays) {
		for stay := s.scan.MinStayDays; stay <= maxStay; stay++ {
			ret := outbound.AddDate(0, 0, stay)
			if ret.After(horizon) {
				break
			}
			pairs = append(pairs, datePair{outbound: outbound, ret: ret})
		}
	}
	return pairs
}

// routes expands origins × destinations, skipping degenerate pairs.
func (s *Service) routes() []model.Route {
	routes := make([]model.Route, 0, len(s.scan.Origins)*len(s.scan.Destinations))
	for _, origin := range s.scan.Origins {
		for _, destination := range s.scan.Destinations {
			if origin == destination {
				continue
			}
			routes = append(routes, model.Route{Origin: origin, Destination: destination})
		}
	}
	return routes
}
