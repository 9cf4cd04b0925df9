package execution

import (
	"golang.org/x/text/language"

	"github.com/syssam/orbql"
)

// NormalizeLocale canonicalizes a locale to the "ll" or "ll_RR" form stored
// in translation tables. Both "-" and "_" separators are accepted, so
// "en-us" and "en_US" normalize to "en_US". AllLocales is returned as is.
func NormalizeLocale(locale string) (string, error) {
	if locale == AllLocales {
		return locale, nil
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return "", orbql.NewQueryInvalidError("invalid locale %q: %v", locale, err)
	}
	base, _ := tag.Base()
	region, conf := tag.Region()
	if conf != language.Exact {
		return base.String(), nil
	}
	return base.String() + "_" + region.String(), nil
}

// Locales returns the normalized locale and default locale of c.
func (c *Context) Locales() (current, fallback string, err error) {
	if current, err = NormalizeLocale(c.CurrentLocale()); err != nil {
		return "", "", err
	}
	if fallback, err = NormalizeLocale(c.DefaultLocaleOrBase()); err != nil {
		return "", "", err
	}
	return current, fallback, nil
}
