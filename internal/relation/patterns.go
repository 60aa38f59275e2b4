package relation

import (
	"strings"

	"github.com/pitabwire/schemadmin/model"
)

// CandidatePatterns returns the ordered endpoint paths to probe for a
// relation field. With a related model "app.model":
//
//	app/model/, api/app/model/, app/models/, api/app/models/,
//	model/, api/model/, models/, api/models/
//
// Without one, the base name is the field name minus "_id":
//
//	base/, api/base/, bases/, api/bases/
func CandidatePatterns(f model.Field) []string {
	app, mdl := f.AppModel()
	app = strings.ToLower(app)
	mdl = strings.ToLower(mdl)

	if mdl == "" {
		base := strings.TrimSuffix(strings.ToLower(f.Name), "_id")
		if base == "" {
			return nil
		}
		return []string{
			base + "/",
			"api/" + base + "/",
			base + "s/",
			"api/" + base + "s/",
		}
	}

	var patterns []string
	if app != "" {
		patterns = append(patterns,
			app+"/"+mdl+"/",
			"api/"+app+"/"+mdl+"/",
			app+"/"+mdl+"s/",
			"api/"+app+"/"+mdl+"s/",
		)
	}
	return append(patterns,
		mdl+"/",
		"api/"+mdl+"/",
		mdl+"s/",
		"api/"+mdl+"s/",
	)
}

// kindLabel names the related entity in fallback display strings.
func kindLabel(f model.Field) string {
	if _, mdl := f.AppModel(); mdl != "" {
		return mdl
	}
	return strings.TrimSuffix(f.Name, "_id")
}
