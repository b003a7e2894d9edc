package store_test

import (
	"testing"

	"github.com/kilianp07/chargewatch/core/model"
	"github.com/kilianp07/chargewatch/core/store"
	"github.com/kilianp07/chargewatch/core/store/storetest"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Fixture {
		s := store.NewMemoryStore()
		return storetest.Fixture{
			Store:         s,
			AddCharger:    func(_ *testing.T, c model.Charger) { s.PutCharger(c) },
			RemoveCharger: func(_ *testing.T, id int64) { s.RemoveCharger(id) },
			Sessions:      func(_ *testing.T, id string) []model.ChargingSession { return s.Sessions(id) },
		}
	})
}
