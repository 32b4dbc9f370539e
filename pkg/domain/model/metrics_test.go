package model_test

import (
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
)

func TestSyncMetrics(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := model.NewSyncMetrics(start)
	m.SetTotalUsers(200)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 0:
				m.AddSuccess()
			case 1:
				m.AddFailure()
			case 2:
				m.AddInvalid()
			case 3:
				m.AddCacheHit()
			}
		}(i)
	}
	wg.Wait()

	gt.Value(t, m.SuccessfulFetches()).Equal(25)
	gt.Value(t, m.FailedFetches()).Equal(25)
	gt.Value(t, m.InvalidProfiles()).Equal(25)
	gt.Value(t, m.CacheHits()).Equal(25)
	gt.Value(t, m.Resolved()).Equal(50)

	tel := m.Telemetry(start.Add(90*time.Second), 50)
	gt.Value(t, tel.TotalDuration).Equal(int64(90000))
	gt.Value(t, tel.SuccessRate).Equal(25.0)
	gt.Value(t, tel.TotalUsers).Equal(200)
}
