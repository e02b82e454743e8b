package plan

// Tier is a named subscription level.
type Tier string

const (
	TierFree         Tier = "FREE"
	TierStarter      Tier = "STARTER"
	TierProfessional Tier = "PROFESSIONAL"
	TierEnterprise   Tier = "ENTERPRISE"
)

// Feature is a plan capability flag.
type Feature string

const (
	PublicAPI       Feature = "public_api"
	CSVExport       Feature = "csv_export"
	LoyverseSync    Feature = "loyverse_sync"
	DeliverooSync   Feature = "deliveroo_sync"
	UberEatsSync    Feature = "ubereats_sync"
	JustEatSync     Feature = "justeat_sync"
	EmailSupport    Feature = "email_support"
	PrioritySupport Feature = "priority_support"
)

// Unlimited is the sentinel limit value. It must never be compared as a
// numeric upper bound; check IsUnlimited first.
const Unlimited = -1

type Limits struct {
	Restaurants int
	Products    int
	APICalls    int
}

type Plan struct {
	Tier         Tier
	Name         string
	Description  string
	PriceMonthly float64
	PriceYearly  float64
	Features     map[Feature]bool
	Limits       Limits
}

var Catalog = map[Tier]Plan{
	TierFree: {
		Tier:         TierFree,
		Name:         "Free",
		Description:  "For single sites trying Tightship out",
		PriceMonthly: 0,
		PriceYearly:  0,
		Features: map[Feature]bool{
			PublicAPI:       false,
			CSVExport:       false,
			LoyverseSync:    false,
			DeliverooSync:   false,
			UberEatsSync:    false,
			JustEatSync:     false,
			EmailSupport:    false,
			PrioritySupport: false,
		},
		Limits: Limits{Restaurants: 1, Products: 50, APICalls: 1000},
	},
	TierStarter: {
		Tier:         TierStarter,
		Name:         "Starter",
		Description:  "For independent restaurants",
		PriceMonthly: 29,
		PriceYearly:  290,
		Features: map[Feature]bool{
			PublicAPI:       true,
			CSVExport:       true,
			LoyverseSync:    true,
			DeliverooSync:   false,
			UberEatsSync:    false,
			JustEatSync:     false,
			EmailSupport:    true,
			PrioritySupport: false,
		},
		Limits: Limits{Restaurants: 3, Products: 500, APICalls: 10000},
	},
	TierProfessional: {
		Tier:         TierProfessional,
		Name:         "Professional",
		Description:  "For growing groups with delivery platforms",
		PriceMonthly: 79,
		PriceYearly:  790,
		Features: map[Feature]bool{
			PublicAPI:       true,
			CSVExport:       true,
			LoyverseSync:    true,
			DeliverooSync:   true,
			UberEatsSync:    true,
			JustEatSync:     true,
			EmailSupport:    true,
			PrioritySupport: false,
		},
		Limits: Limits{Restaurants: 10, Products: 5000, APICalls: 100000},
	},
	TierEnterprise: {
		Tier:         TierEnterprise,
		Name:         "Enterprise",
		Description:  "For estates and franchises",
		PriceMonthly: 199,
		PriceYearly:  1990,
		Features: map[Feature]bool{
			PublicAPI:       true,
			CSVExport:       true,
			LoyverseSync:    true,
			DeliverooSync:   true,
			UberEatsSync:    true,
			JustEatSync:     true,
			EmailSupport:    true,
			PrioritySupport: true,
		},
		Limits: Limits{Restaurants: Unlimited, Products: Unlimited, APICalls: Unlimited},
	},
}

// Get returns the catalog entry for a tier, falling back to FREE for unknown
// tiers so a bad row never grants paid limits.
func Get(tier Tier) Plan {
	if p, ok := Catalog[tier]; ok {
		return p
	}
	return Catalog[TierFree]
}

func CanUseFeature(tier Tier, feature Feature) bool {
	return Get(tier).Features[feature]
}

func IsUnlimited(limit int) bool {
	return limit == Unlimited
}
