package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-trust/internal/model"
)

// auditJSON holds the JSON-encoded columns of a trust_audits row.
type auditJSON struct {
	subScores []byte
	flags     []byte
	fixes     []byte
}

func encodeAudit(a model.TrustAudit) (auditJSON, error) {
	var (
		out auditJSON
		err error
	)
	if out.subScores, err = json.Marshal(a.SubScores); err != nil {
		return out, eris.Wrap(err, "marshal sub scores")
	}
	if out.flags, err = json.Marshal(nonNil(a.Flags)); err != nil {
		return out, eris.Wrap(err, "marshal flags")
	}
	if out.fixes, err = json.Marshal(nonNil(a.SuggestedFixes)); err != nil {
		return out, eris.Wrap(err, "marshal suggested fixes")
	}
	return out, nil
}

func (j auditJSON) decodeInto(a *model.TrustAudit) error {
	if err := json.Unmarshal(j.subScores, &a.SubScores); err != nil {
		return eris.Wrap(err, "unmarshal sub scores")
	}
	if err := json.Unmarshal(j.flags, &a.Flags); err != nil {
		return eris.Wrap(err, "unmarshal flags")
	}
	if err := json.Unmarshal(j.fixes, &a.SuggestedFixes); err != nil {
		return eris.Wrap(err, "unmarshal suggested fixes")
	}
	a.Flags = nonNil(a.Flags)
	a.SuggestedFixes = nonNil(a.SuggestedFixes)
	return nil
}

func encodeListing(l *model.Listing) ([]byte, error) {
	cp := *l
	cp.Images = nonNil(cp.Images)
	body, err := json.Marshal(cp)
	return body, eris.Wrap(err, "marshal listing")
}

func decodeListing(body []byte) (*model.Listing, error) {
	var l model.Listing
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, eris.Wrap(err, "unmarshal listing")
	}
	l.Images = nonNil(l.Images)
	return &l, nil
}
