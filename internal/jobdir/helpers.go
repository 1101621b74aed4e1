package jobdir

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// decodeFacet ensures raw carries a facet_data.about.uuid, generating one if
// absent, and returns both the fully decoded facet map and the event_id
// string to use alongside it. Full decoding only happens here, at the point
// an event is about to be emitted — every earlier stage (events_router,
// marker parsing) works off gjson field peeks so the structured-event
// payload stays undecoded until then.
func decodeFacet(raw []byte) (map[string]interface{}, string) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if !gjson.GetBytes(raw, "about.uuid").Exists() {
		if withID, err := sjson.SetBytes(raw, "about.uuid", uuid.NewString()); err == nil {
			raw = withID
		}
	}
	id := gjson.GetBytes(raw, "about.uuid").String()

	facet := map[string]interface{}{}
	_ = json.Unmarshal(raw, &facet)
	return facet, id
}

// synthesizeInfo builds the fallback facet_data used when the opaque line
// parser returns no result for a non-comment line:
// {"info": [{"details": line, "tag": tag, "debug": debug}]}.
func synthesizeInfo(line string, tag StreamTag, debug bool) []byte {
	raw := []byte("{}")
	raw, _ = sjson.SetBytes(raw, "info.0.details", line)
	raw, _ = sjson.SetBytes(raw, "info.0.tag", string(tag))
	raw, _ = sjson.SetBytes(raw, "info.0.debug", debug)
	return raw
}
