package settings

// Settings is the versioned, user-facing configuration object. It is loaded
// once at process start, held as a single in-memory instance guarded by the
// Store, and passed to the masking pipeline by value.
//
// Field names follow the camelCase wire shape the desktop UI persists, so a
// settings file written by an older client round-trips unchanged.
type Settings struct {
	SettingsVersion    int    `json:"settingsVersion"`
	SecurityMasterMode string `json:"securityMasterMode"`
	EnableGemini       bool   `json:"enableGemini"`
	NoSave             bool   `json:"noSave"`
	EncryptTempFiles   bool   `json:"encryptTempFiles"`
	AutoClearClipboard bool   `json:"autoClearClipboard"`
	ClearAllOnExit     bool   `json:"clearAllOnExit"`

	// Masking policy. MaskAddress and MaskNames are accepted but currently
	// change nothing; locale-aware NER resources are a future dependency.
	MaskStrength   string   `json:"maskStrength"`
	MaskPhone      bool     `json:"maskPhone"`
	MaskEmail      bool     `json:"maskEmail"`
	MaskAddress    bool     `json:"maskAddress"`
	MaskNumbers    bool     `json:"maskNumbers"`
	MaskNames      bool     `json:"maskNames"`
	WhitelistWords []string `json:"whitelistWords"`

	SendTextOnlyToGemini bool   `json:"sendTextOnlyToGemini"`
	DisableDataTraining  bool   `json:"disableDataTraining"`
	RegionPreference     string `json:"regionPreference"`
	UseBYOKey            bool   `json:"useByoKey"`
	SaveEmailDisplayName bool   `json:"saveEmailDisplayName"`
	ShortLivedSession    bool   `json:"shortLivedSession"`
	ClearTokensOnLogout  bool   `json:"clearTokensOnLogout"`

	EnableErrorLogs         bool `json:"enableErrorLogs"`
	EnableUsageStats        bool `json:"enableUsageStats"`
	AutoDeleteLogsAfterDays int  `json:"autoDeleteLogsAfterDays"`

	// DLP policy: when scanning is enabled, DLPAction is one of
	// "mask", "warn" or "block".
	EnableDLPScan bool   `json:"enableDlpScan"`
	DLPAction     string `json:"dlpAction"`

	OfflineMode bool `json:"offlineMode"`

	// Reformatting behavior for the language-model collaborator.
	NaturalizeExpressions       bool `json:"naturalizeExpressions"`
	AutoPunctuation             bool `json:"autoPunctuation"`
	UnifyForeignWords           bool `json:"unifyForeignWords"`
	PreserveOriginalProperNouns bool `json:"preserveOriginalProperNouns"`
	NoSummaryOrEmbellishment    bool `json:"noSummaryOrEmbellishment"`

	CustomReplaceRules []ReplaceRule `json:"customReplaceRules"`
}

// ReplaceRule is a user-authored pattern/replacement pair applied after the
// built-in masks. Flags, when non-empty, is prefixed to the pattern as an
// inline modifier group at compile time.
type ReplaceRule struct {
	Pattern string `json:"pattern"`
	Replace string `json:"replace"`
	Flags   string `json:"flags,omitempty"`
}

// Defaults returns the documented default settings used when no settings file
// exists yet.
func Defaults() Settings {
	return Settings{
		SettingsVersion:             1,
		SecurityMasterMode:          "standard",
		EnableGemini:                true,
		NoSave:                      true,
		EncryptTempFiles:            true,
		AutoClearClipboard:          true,
		ClearAllOnExit:              true,
		MaskStrength:                "standard",
		MaskPhone:                   true,
		MaskEmail:                   true,
		MaskAddress:                 true,
		MaskNumbers:                 true,
		MaskNames:                   false,
		WhitelistWords:              []string{},
		SendTextOnlyToGemini:        true,
		DisableDataTraining:         true,
		RegionPreference:            "nearest",
		UseBYOKey:                   true,
		SaveEmailDisplayName:        false,
		ShortLivedSession:           true,
		ClearTokensOnLogout:         true,
		EnableErrorLogs:             false,
		EnableUsageStats:            false,
		AutoDeleteLogsAfterDays:     90,
		EnableDLPScan:               true,
		DLPAction:                   "mask",
		OfflineMode:                 false,
		NaturalizeExpressions:       true,
		AutoPunctuation:             true,
		UnifyForeignWords:           true,
		PreserveOriginalProperNouns: true,
		NoSummaryOrEmbellishment:    true,
		CustomReplaceRules:          []ReplaceRule{},
	}
}

// Clone returns a deep copy safe to hand out as a snapshot.
func (s Settings) Clone() Settings {
	out := s
	if s.WhitelistWords != nil {
		out.WhitelistWords = make([]string, len(s.WhitelistWords))
		copy(out.WhitelistWords, s.WhitelistWords)
	}
	if s.CustomReplaceRules != nil {
		out.CustomReplaceRules = make([]ReplaceRule, len(s.CustomReplaceRules))
		copy(out.CustomReplaceRules, s.CustomReplaceRules)
	}
	return out
}
