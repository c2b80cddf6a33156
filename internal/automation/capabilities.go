package automation

// Capabilities mirrors the WebDriver/Appium "desired capabilities"
// document, grounded on original_source/apps/worker/appium_core/capabilities.py.
type Capabilities map[string]any

// BuildCapabilities builds UiAutomator2 capabilities for a target app
// (spec.md §4.C: platform=Android, automation=UiAutomator2, device
// UDID, systemPort=allocated port, app package/activity, noReset,
// idle timeout).
func BuildCapabilities(udid string, systemPort int, appPackage, appActivity string, noReset bool, newCommandTimeoutSec int) Capabilities {
	return Capabilities{
		"platformName":                      "Android",
		"appium:automationName":             "UiAutomator2",
		"appium:udid":                       udid,
		"appium:systemPort":                 systemPort,
		"appium:appPackage":                 appPackage,
		"appium:appActivity":                appActivity,
		"appium:noReset":                    noReset,
		"appium:newCommandTimeout":          newCommandTimeoutSec,
		"appium:skipServerInstallation":     false,
		"appium:skipDeviceInitialization":   false,
		"appium:ignoreUnimportantViews":     true,
		"appium:autoGrantPermissions":       true,
		"appium:disableWindowAnimation":     true,
		"appium:uiautomator2ServerLaunchTimeout":  60000,
		"appium:uiautomator2ServerInstallTimeout": 60000,
	}
}

// BuildGenericCapabilities builds capabilities for driving an
// already-running app, with no target package pinned.
func BuildGenericCapabilities(udid string, systemPort int, newCommandTimeoutSec int) Capabilities {
	return Capabilities{
		"platformName":                  "Android",
		"appium:automationName":         "UiAutomator2",
		"appium:udid":                   udid,
		"appium:systemPort":             systemPort,
		"appium:noReset":                true,
		"appium:newCommandTimeout":      newCommandTimeoutSec,
		"appium:ignoreUnimportantViews": true,
		"appium:autoGrantPermissions":   true,
		"appium:disableWindowAnimation": true,
	}
}
