// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import "strings"

// therapyDrugs lists known agents per therapy class, approved and
// investigational together. Classes are checked in this order.
var therapyDrugs = []struct {
	class string
	drugs []string
}{
	{"Immune Checkpoint Inhibitors", []string{"pembrolizumab", "nivolumab", "ipilimumab", "relatlimab", "cemiplimab", "avelumab", "atezolizumab", "tremelimumab", "triple checkpoint blockade"}},
	{"Cellular Therapy", []string{"lifileucel", "amtagvi", "til therapy", "tumor-infiltrating lymphocyte", "car t-cell", "car-t"}},
	{"Targeted Therapy", []string{"vemurafenib", "dabrafenib", "trametinib", "encorafenib", "binimetinib", "cobimetinib", "vismodegib", "sonidegib"}},
	{"Oncolytic Virus Therapy", []string{"talimogene laherparepvec", "t-vec", "imlygic", "rp1", "vusolimogene"}},
	{"Chemotherapy", []string{"dacarbazine", "temozolomide", "fotemustine", "carboplatin", "paclitaxel"}},
	{"Bispecific Antibodies", []string{"tebentafusp", "kimmtrak"}},
	{"Vaccine/Immunostimulant", []string{"vaccine", "immunostimulant", "mrna-4157", "intismeran"}},
}

// TherapyType classifies a regimen by the first drug of the combination that
// matches a known agent. It returns "" when nothing matches.
func TherapyType(genericName string) string {
	for _, drug := range strings.Split(strings.ToLower(genericName), "+") {
		drug = strings.TrimSpace(drug)
		if drug == "" {
			continue
		}
		for _, t := range therapyDrugs {
			for _, known := range t.drugs {
				if strings.Contains(drug, known) {
					return t.class
				}
			}
		}
	}
	return ""
}
