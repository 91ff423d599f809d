package osrelease

import "strings"

type OsVersion struct {
	NAME       string `json:"name"`
	OID        string `json:"oid"`
	IDLike     string `json:"id_like"`
	VERSION    string `json:"version"`
	VERSION_ID string `json:"version_id"`
}

// Family returns the distribution ids this release belongs to, most specific first.
func (o *OsVersion) Family() []string {
	ids := []string{strings.ToLower(o.OID)}
	for _, id := range strings.Fields(o.IDLike) {
		ids = append(ids, strings.ToLower(id))
	}
	return ids
}
