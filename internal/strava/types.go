package strava

// Athlete is the subset of the Strava athlete object we care about.
type Athlete struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
}

// TokenResponse is Strava's token endpoint payload. Strava returns the
// absolute expires_at (epoch seconds) alongside the relative
// expires_in; we persist the absolute one.
type TokenResponse struct {
	TokenType    string   `json:"token_type"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresAt    int64    `json:"expires_at"`
	ExpiresIn    int64    `json:"expires_in"`
	Scope        string   `json:"scope"`
	Athlete      *Athlete `json:"athlete,omitempty"`
}

// Activity is the detailed activity payload from GET /activities/{id}.
type Activity struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Distance     float64 `json:"distance"`      // meters
	MovingTime   int64   `json:"moving_time"`   // seconds
	ElapsedTime  int64   `json:"elapsed_time"`  // seconds
	AverageSpeed float64 `json:"average_speed"` // m/s
	MaxSpeed     float64 `json:"max_speed"`     // m/s
	StartDate    string  `json:"start_date"`
}

// Subscription is the provider-side push subscription record.
type Subscription struct {
	ID          int64  `json:"id"`
	CallbackURL string `json:"callback_url"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}
