package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}

// LocaleKey holds the resolved notice locale ("en" or "id").
var LocaleKey = localeContextKey{}

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

var (
	supportedLocales = []language.Tag{language.English, language.Indonesian}
	localeMatcher    = language.NewMatcher(supportedLocales)
)

// countryHeaders are set by CDNs and load balancers in front of the API.
var countryHeaders = []string{"CF-IPCountry", "X-Country-Code"}

// I18N resolves the locale used for notices. A locale set upstream from token
// claims wins; then X-Locale, Accept-Language, the caller's country and
// finally defaultLocale.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	fallback := normalizeLocale(defaultLocale)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Value(LocaleKey).(string); ok {
				next.ServeHTTP(w, r)
				return
			}
			locale := requestLocale(r)
			if locale == "" {
				locale = fallback
				if strings.EqualFold(ResolveCountry(r, lookup), "ID") {
					locale = "id"
				}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), LocaleKey, locale)))
		})
	}
}

// requestLocale returns the locale the client asked for, or "" when it did not
// express a preference.
func requestLocale(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		return normalizeLocale(v)
	}
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return ""
	}
	return matchLocale(tags...)
}

func matchLocale(tags ...language.Tag) string {
	_, idx, conf := localeMatcher.Match(tags...)
	if conf == language.No || idx != 1 {
		return "en"
	}
	return "id"
}

func normalizeLocale(locale string) string {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(locale)), "id") {
			return "id"
		}
		return "en"
	}
	return matchLocale(tag)
}

// LocaleFromContext returns the request locale, "en" when none was resolved.
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return "en"
}

// ResolveCountry returns an upper-case ISO country code for the caller, or ""
// when neither proxy headers nor the GeoIP lookup know it.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	for _, key := range countryHeaders {
		if v := strings.TrimSpace(r.Header.Get(key)); len(v) == 2 {
			return strings.ToUpper(v)
		}
	}
	if lookup == nil {
		return ""
	}
	country, err := lookup(remoteHost(r))
	if err != nil {
		return ""
	}
	return strings.ToUpper(country)
}

// remoteHost strips the port from RemoteAddr. chi's RealIP has already
// replaced RemoteAddr with the forwarded client address.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
