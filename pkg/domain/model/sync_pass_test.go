package model_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
)

func TestPlanPasses(t *testing.T) {
	t.Run("splits population into ceil(total/limit) passes", func(t *testing.T) {
		p := model.PlanPasses(1001, 250)
		gt.Value(t, p).NotNil()
		gt.Value(t, *p).Equal(model.SyncPass{Pass: 1, TotalPasses: 5, Offset: 0, Limit: 250})
	})

	t.Run("returns nil for empty population", func(t *testing.T) {
		gt.Value(t, model.PlanPasses(0, 250)).Nil()
		gt.Value(t, model.PlanPasses(10, 0)).Nil()
	})
}

func TestNextPass(t *testing.T) {
	t.Run("walks every pass exactly once", func(t *testing.T) {
		p := model.PlanPasses(10, 3)
		var offsets []int
		for p != nil {
			offsets = append(offsets, p.Offset)
			if p.IsFinal() {
				gt.Value(t, p.Pass).Equal(4)
			}
			p = model.NextPass(*p)
		}
		gt.Value(t, offsets).Equal([]int{0, 3, 6, 9})
	})

	t.Run("final pass has no successor", func(t *testing.T) {
		final := model.SyncPass{Pass: 2, TotalPasses: 2, Offset: 5, Limit: 5}
		gt.B(t, final.IsFinal()).True()
		gt.Value(t, model.NextPass(final)).Nil()
	})

	t.Run("is a pure function of the descriptor", func(t *testing.T) {
		cur := model.SyncPass{Pass: 1, TotalPasses: 3, Offset: 0, Limit: 100}
		a := model.NextPass(cur)
		b := model.NextPass(cur)
		gt.Value(t, *a).Equal(*b)
		gt.Value(t, cur.Pass).Equal(1)
	})
}

func TestSyncPass_Validate(t *testing.T) {
	tests := []struct {
		name    string
		pass    model.SyncPass
		wantErr bool
	}{
		{name: "valid first pass", pass: model.SyncPass{Pass: 1, TotalPasses: 2, Limit: 10}},
		{name: "zero pass", pass: model.SyncPass{Pass: 0, TotalPasses: 2, Limit: 10}, wantErr: true},
		{name: "pass beyond total", pass: model.SyncPass{Pass: 3, TotalPasses: 2, Limit: 10}, wantErr: true},
		{name: "negative offset", pass: model.SyncPass{Pass: 1, TotalPasses: 1, Offset: -1, Limit: 10}, wantErr: true},
		{name: "zero limit", pass: model.SyncPass{Pass: 1, TotalPasses: 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pass.Validate()
			if tt.wantErr {
				gt.B(t, errors.Is(err, model.ErrInvalidSyncPass)).True()
				return
			}
			gt.NoError(t, err)
		})
	}
}
