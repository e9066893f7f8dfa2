package split

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
)

func amounts(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.RequireFromString(v)
	}
	return out
}

func inputs(pairs map[string]string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(pairs))
	for k, v := range pairs {
		out[k] = decimal.RequireFromString(v)
	}
	return out
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name         string
		method       models.SplitMethod
		amount       string
		participants []string
		inputs       map[string]string
		wantErr      bool
		want         []string
	}{
		{
			name:         "equal split divides evenly",
			method:       models.SplitEqual,
			amount:       "60",
			participants: []string{"alice", "bob", "carol"},
			want:         []string{"20", "20", "20"},
		},
		{
			name:         "equal split assigns remainder cents head first",
			method:       models.SplitEqual,
			amount:       "100",
			participants: []string{"alice", "bob", "carol"},
			want:         []string{"33.34", "33.33", "33.33"},
		},
		{
			name:         "equal split two cents remainder",
			method:       models.SplitEqual,
			amount:       "0.05",
			participants: []string{"alice", "bob", "carol"},
			want:         []string{"0.02", "0.02", "0.01"},
		},
		{
			name:         "equal split rejects sub-cent amount",
			method:       models.SplitEqual,
			amount:       "10.005",
			participants: []string{"alice", "bob"},
			wantErr:      true,
		},
		{
			name:         "exact split uses provided amounts",
			method:       models.SplitExact,
			amount:       "50",
			participants: []string{"alice", "bob"},
			inputs:       map[string]string{"alice": "30", "bob": "20"},
			want:         []string{"30", "20"},
		},
		{
			name:         "exact split rejects mismatched sum",
			method:       models.SplitExact,
			amount:       "50",
			participants: []string{"alice", "bob"},
			inputs:       map[string]string{"alice": "30", "bob": "25"},
			wantErr:      true,
		},
		{
			name:         "exact split rejects missing participant",
			method:       models.SplitExact,
			amount:       "50",
			participants: []string{"alice", "bob"},
			inputs:       map[string]string{"alice": "50"},
			wantErr:      true,
		},
		{
			name:         "percentage split apportions by percent",
			method:       models.SplitPercentage,
			amount:       "200",
			participants: []string{"alice", "bob"},
			inputs:       map[string]string{"alice": "75", "bob": "25"},
			want:         []string{"150", "50"},
		},
		{
			name:         "percentage split folds drift into last participant",
			method:       models.SplitPercentage,
			amount:       "100",
			participants: []string{"alice", "bob", "carol"},
			inputs:       map[string]string{"alice": "33.33", "bob": "33.33", "carol": "33.34"},
			want:         []string{"33.33", "33.33", "33.34"},
		},
		{
			name:         "percentage split rejects sum off 100",
			method:       models.SplitPercentage,
			amount:       "100",
			participants: []string{"alice", "bob"},
			inputs:       map[string]string{"alice": "60", "bob": "50"},
			wantErr:      true,
		},
		{
			name:         "shares split weights proportionally",
			method:       models.SplitShares,
			amount:       "90",
			participants: []string{"alice", "bob", "carol"},
			inputs:       map[string]string{"alice": "2", "bob": "1", "carol": "3"},
			want:         []string{"30", "15", "45"},
		},
		{
			name:         "shares split rejects zero total weight",
			method:       models.SplitShares,
			amount:       "90",
			participants: []string{"alice", "bob"},
			inputs:       map[string]string{"alice": "0", "bob": "0"},
			wantErr:      true,
		},
		{
			name:         "no participants",
			method:       models.SplitEqual,
			amount:       "10",
			participants: nil,
			wantErr:      true,
		},
		{
			name:         "non-positive amount",
			method:       models.SplitEqual,
			amount:       "0",
			participants: []string{"alice"},
			wantErr:      true,
		},
		{
			name:         "unknown method",
			method:       models.SplitMethod("weird"),
			amount:       "10",
			participants: []string{"alice"},
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tt.amount)
			splits, err := Compute(tt.method, amount, tt.participants, inputs(tt.inputs))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got splits %+v", splits)
				}
				return
			}
			if err != nil {
				t.Fatalf("Compute failed: %v", err)
			}

			if len(splits) != len(tt.participants) {
				t.Fatalf("got %d splits, want %d", len(splits), len(tt.participants))
			}
			want := amounts(tt.want...)
			for i, s := range splits {
				if s.ParticipantID != tt.participants[i] {
					t.Errorf("split %d participant = %s, want %s", i, s.ParticipantID, tt.participants[i])
				}
				if !s.OwedAmount.Equal(want[i]) {
					t.Errorf("split %d amount = %s, want %s", i, s.OwedAmount, want[i])
				}
			}

			if err := Validate(amount, splits); err != nil {
				t.Errorf("computed splits fail validation: %v", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	amount := decimal.RequireFromString("50")
	good := []models.Split{
		{ParticipantID: "alice", OwedAmount: decimal.RequireFromString("30")},
		{ParticipantID: "bob", OwedAmount: decimal.RequireFromString("20")},
	}
	if err := Validate(amount, good); err != nil {
		t.Errorf("Validate failed on balanced splits: %v", err)
	}

	bad := []models.Split{
		{ParticipantID: "alice", OwedAmount: decimal.RequireFromString("30")},
		{ParticipantID: "bob", OwedAmount: decimal.RequireFromString("25")},
	}
	if err := Validate(amount, bad); err == nil {
		t.Error("Validate accepted splits off by more than a cent")
	}
}
