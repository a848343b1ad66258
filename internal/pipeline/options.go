package pipeline

import (
	"github.com/jonathan/compass-harvester/internal/collect"
	"github.com/jonathan/compass-harvester/internal/config"
	"github.com/jonathan/compass-harvester/internal/fetch"
	"github.com/jonathan/compass-harvester/internal/harvest"
	"github.com/jonathan/compass-harvester/internal/navigation"
	"github.com/jonathan/compass-harvester/internal/page"
)

// BrowserOptions maps the browser section.
func BrowserOptions(c config.BrowserConfig) fetch.BrowserOptions {
	return fetch.BrowserOptions{
		RemoteURL:   c.RemoteURL,
		ExecPath:    c.ExecPath,
		UserDataDir: c.UserDataDir,
		Headless:    c.Headless,
		UserAgent:   c.UserAgent,
		LoadTimeout: c.LoadTimeout,
	}
}

// Timings maps the timing section onto the harvest loop delays.
func Timings(c config.TimingConfig) harvest.Timings {
	return harvest.Timings{
		CategorySettle:  c.CategorySettle,
		SearchWait:      c.SearchWait,
		SearchPoll:      c.SearchPoll,
		SelectionSettle: c.SelectionSettle,
		DownloadPause:   c.DownloadPause,
		ExistingPause:   c.ExistingPause,
		ErrorPause:      c.ErrorPause,
		EntryPause:      c.EntryPause,
	}
}

// PageOptions maps the input delays of the search box.
func PageOptions(c config.TimingConfig) page.Options {
	return page.Options{
		InputSettle: c.InputSettle,
		ClearSettle: c.ClearSettle,
	}
}

// NavigatorOptions keeps the picker's default settles and applies the
// configured retry budget and final settle.
func NavigatorOptions(c config.TimingConfig) navigation.Options {
	opts := navigation.DefaultOptions()
	if c.MenuAttempts > 0 {
		opts.MenuAttempts = c.MenuAttempts
	}
	opts.MenuBackoff = c.MenuBackoff
	opts.FinalSettle = c.NavigateSettle
	return opts
}

// CollectOptions maps the collect section.
func CollectOptions(c config.CollectConfig) collect.Options {
	return collect.Options{
		MaxPages:     c.MaxPages,
		GrowthPolls:  c.GrowthPolls,
		PollInterval: c.PollInterval,
		InjectSettle: c.InjectSettle,
	}
}

// Downloader builds the media downloader.
func Downloader(c config.DownloadConfig) *fetch.Downloader {
	opts := fetch.DefaultOptions()
	opts.Timeout = c.Timeout
	if c.UserAgent != "" {
		opts.UserAgent = c.UserAgent
	}
	opts.Referer = c.Referer
	return fetch.NewDownloader(opts)
}
