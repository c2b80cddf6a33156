// Package youtube implements component E: search/navigate, random
// surf, probabilistic interactions, and the inline ad skipper, all
// driven through internal/automation's selector engine and actions.
package youtube

import (
	"time"

	"github.com/doai-fleet/farmctl/internal/automation"
)

// YouTubePackage is the app id every foreground/activation check
// compares against.
const YouTubePackage = "com.google.android.youtube"

// Element-lookup timeouts, grounded on youtube/constants.py's timeout
// constants (the file itself ships no selector bodies in the retrieved
// source — reconstructed from the call sites in search_flow.py,
// random_surf.py, youtube_actions.py, and ad_skipper.py).
const (
	TimeoutSearch        = 10 * time.Second
	TimeoutElementDefault = 8 * time.Second
	TimeoutElementShort   = 3 * time.Second
	TimeoutAdCheck        = 2 * time.Second
)

var (
	SearchButtonSelectors = []automation.Strategy{
		{Kind: automation.StrategyID, Value: "menu_item_1"},
		{Kind: automation.StrategyAccessibilityID, Value: "Search"},
		{Kind: automation.StrategyDescContains, Value: "검색"},
	}

	SearchInputSelectors = []automation.Strategy{
		{Kind: automation.StrategyID, Value: "search_edit_text"},
		{Kind: automation.StrategyClassName, Value: "android.widget.EditText"},
	}

	SearchResultVideoSelectors = []automation.Strategy{
		{Kind: automation.StrategyID, Value: "video_title"},
		{Kind: automation.StrategyID, Value: "title"},
		{Kind: automation.StrategyClassName, Value: "android.widget.TextView"},
	}

	HomeTabSelectors = []automation.Strategy{
		{Kind: automation.StrategyAccessibilityID, Value: "Home"},
		{Kind: automation.StrategyDescContains, Value: "홈"},
		{Kind: automation.StrategyID, Value: "pivot_bar_item_home"},
	}

	FeedVideoSelectors = []automation.Strategy{
		{Kind: automation.StrategyID, Value: "video_title"},
		{Kind: automation.StrategyID, Value: "title"},
	}

	LikeButtonSelectors = []automation.Strategy{
		{Kind: automation.StrategyID, Value: "like_button"},
		{Kind: automation.StrategyAccessibilityID, Value: "like this video"},
		{Kind: automation.StrategyDescContains, Value: "좋아요"},
	}

	CommentButtonSelectors = []automation.Strategy{
		{Kind: automation.StrategyID, Value: "comments_entry_point_simplebox"},
		{Kind: automation.StrategyDescContains, Value: "댓글"},
		{Kind: automation.StrategyTextContains, Value: "Comments"},
	}

	CommentInputSelectors = []automation.Strategy{
		{Kind: automation.StrategyID, Value: "comment_composer_edit_text"},
		{Kind: automation.StrategyClassName, Value: "android.widget.EditText"},
	}

	CommentPostButtonSelectors = []automation.Strategy{
		{Kind: automation.StrategyID, Value: "submit_button"},
		{Kind: automation.StrategyAccessibilityID, Value: "Comment"},
		{Kind: automation.StrategyTextContains, Value: "게시"},
	}

	SubscribeButtonSelectors = []automation.Strategy{
		{Kind: automation.StrategyID, Value: "subscribe_button"},
		{Kind: automation.StrategyTextContains, Value: "Subscribe"},
		{Kind: automation.StrategyTextContains, Value: "구독"},
	}

	// PlaylistButtonSelectors / PlaylistSaveSelectors
	// are a fresh addition (SPEC_FULL.md §4.E, no Python reference ships
	// this interaction); named after the analogous like/subscribe chains.
	PlaylistButtonSelectors = []automation.Strategy{
		{Kind: automation.StrategyID, Value: "save_to_playlist_button"},
		{Kind: automation.StrategyAccessibilityID, Value: "Save to playlist"},
		{Kind: automation.StrategyDescContains, Value: "재생목록에 저장"},
	}

	PlaylistSaveSelectors = []automation.Strategy{
		{Kind: automation.StrategyID, Value: "save_playlist_done_button"},
		{Kind: automation.StrategyTextContains, Value: "Done"},
		{Kind: automation.StrategyTextContains, Value: "완료"},
	}

	AdSkipButtonSelectors = []automation.Strategy{
		{Kind: automation.StrategyID, Value: "skip_ad_button"},
		{Kind: automation.StrategyAccessibilityID, Value: "Skip Ad"},
		{Kind: automation.StrategyDescContains, Value: "건너뛰기"},
	}

	AdIndicatorSelectors = []automation.Strategy{
		{Kind: automation.StrategyID, Value: "ad_badge"},
		{Kind: automation.StrategyDescContains, Value: "Ad"},
		{Kind: automation.StrategyDescContains, Value: "광고"},
	}

	CommentTemplates = []string{
		"Great video!",
		"Really enjoyed this, thanks for sharing.",
		"This was helpful, subscribed!",
		"Nice content as always.",
	}
)
