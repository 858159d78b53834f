// Package i18n is the Persian string table shown to the user.
package i18n

import (
	"maps"
	"slices"
	"unicode/utf8"

	"golang.org/x/text/unicode/bidi"
)

var fa = map[string]string{
	"welcome":     "به DocuChat خوش آمدید",
	"send":        "ارسال",
	"placeholder": "پیام خود را بنویسید...",
	"model":       "مدل",
	"settings":    "تنظیمات",
	"startChat":   "شروع گفتگو",
	"error":       "خطا",
	"retry":       "تلاش مجدد",

	"connected":     "متصل",
	"connecting":    "در حال اتصال...",
	"disconnected":  "قطع",
	"ready":         "برای شروع آماده‌اید؟",
	"description":   "با دستیار هوشمند گفتگو کنید و پاسخ سریع بگیرید.",
	"version":       "نسخه",
	"backendActive": "پشتیبان فعال است",
	"openaiOnly":    "فقط مدل‌های OpenAI",
	"rtlPersian":    "نمایش راست‌به‌چپ فارسی",
	"loading":       "در حال ارسال...",

	"user":      "شما",
	"assistant": "دستیار",
	"system":    "سیستم",
	"typing":    "در حال تایپ...",

	"wsEnabled":           "استریم وب‌سوکت فعال است",
	"wsDisabled":          "استریم وب‌سوکت غیرفعال است",
	"pdfUploadEnabled":    "آپلود PDF فعال است",
	"pdfUploadDisabled":   "آپلود PDF غیرفعال است",
	"teamSharingEnabled":  "اشتراک‌گذاری تیمی فعال",
	"teamSharingDisabled": "اشتراک‌گذاری تیمی غیرفعال",

	"transportHTTP": "HTTP",
	"transportWS":   "WebSocket",

	"wsConnectionError": "خطا در اتصال WebSocket",
	"wsCreateError":     "خطا در ایجاد اتصال",
	"wsNotConnected":    "اتصال WebSocket برقرار نیست",
	"sendFailed":        "خطا در ارسال پیام",
	"unknownError":      "خطای نامشخص",

	"emptyConversation": "هنوز پیامی ارسال نشده است.",
	"help":              "Enter ارسال · Tab تغییر مدل · Ctrl+K پاک کردن · /model /clear /retry /quit",
}

// T returns the translation for key, or key itself when there is none.
func T(key string) string {
	if v, ok := fa[key]; ok {
		return v
	}
	return key
}

// Keys lists every key in the table, sorted.
func Keys() []string {
	return slices.Sorted(maps.Keys(fa))
}

// IsRTL reports whether the first strongly directional character in s is
// right-to-left. Text without any strong character is treated as LTR.
func IsRTL(s string) bool {
	for len(s) > 0 {
		p, size := bidi.LookupString(s)
		if size == 0 {
			_, size = utf8.DecodeRuneInString(s)
		}
		switch p.Class() {
		case bidi.R, bidi.AL:
			return true
		case bidi.L:
			return false
		}
		s = s[size:]
	}
	return false
}
