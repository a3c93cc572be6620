package browser

import "time"

// DefaultURL is the carrier tracking page.
const DefaultURL = "https://www.ups.com/track"

// Selectors locate the parts of the tracking page the session touches.
type Selectors struct {
	CookieClose       string
	TrackingInput     string
	TrackButton       string
	TrackAgainInput   string
	TrackAgainButton  string
	ErrorAlert        string
	Results           string
	ShipMilestone     string
	DeliveryMilestone string
	ChatFrame         string
	ChatClose         string
	ViewDetails       string
	DetailsTab        string
	ModalClose        string
}

// DefaultSelectors returns the selectors of the carrier page.
func DefaultSelectors() Selectors {
	return Selectors{
		CookieClose:       ".implicit_privacy_prompt > .close_btn_thick",
		TrackingInput:     "#stApp_trackingNumber",
		TrackButton:       "#stApp_btnTrack",
		TrackAgainInput:   "#stApp_trackAgain_trackingNumEntry",
		TrackAgainButton:  "#stApp_trackAgain_getTrack",
		ErrorAlert:        "#stApp_error_alert_list0",
		Results:           ".ups-strack_tracking",
		ShipMilestone:     "#stApp_milestoneDateTime1",
		DeliveryMilestone: "#stApp_milestoneDateTime4",
		ChatFrame:         `#nuanMessagingFrame > iframe[src*="nuance-chat.html"]`,
		ChatClose:         ".top-bar-item.icon",
		ViewDetails:       "#st_App_View_Details",
		DetailsTab:        ".ups-tab-content.top-tab",
		ModalClose:        ".modal-content > .modal-header > .close",
	}
}

// Config controls how the browser is started and how long probes wait.
type Config struct {
	URL         string
	Headless    bool
	Bin         string
	DebuggerURL string
	Selectors   Selectors

	NavigationTimeout time.Duration
	ElementTimeout    time.Duration
	ErrorTimeout      time.Duration
	ResultTimeout     time.Duration
	ProbeTimeout      time.Duration
	ChatTimeout       time.Duration
}

// DefaultConfig returns the timings the carrier page needs.
func DefaultConfig() Config {
	return Config{
		URL:               DefaultURL,
		Headless:          true,
		Selectors:         DefaultSelectors(),
		NavigationTimeout: 30 * time.Second,
		ElementTimeout:    10 * time.Second,
		ErrorTimeout:      5 * time.Second,
		ResultTimeout:     20 * time.Second,
		ProbeTimeout:      10 * time.Second,
		ChatTimeout:       10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.URL == "" {
		c.URL = d.URL
	}
	if c.Selectors == (Selectors{}) {
		c.Selectors = d.Selectors
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = d.NavigationTimeout
	}
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = d.ElementTimeout
	}
	if c.ErrorTimeout <= 0 {
		c.ErrorTimeout = d.ErrorTimeout
	}
	if c.ResultTimeout <= 0 {
		c.ResultTimeout = d.ResultTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.ChatTimeout <= 0 {
		c.ChatTimeout = d.ChatTimeout
	}
	return c
}
