package equivalence_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/bytecodelab/foundation/contract/equivalence"
	"github.com/ardanlabs/bytecodelab/foundation/contract/fingerprint"
	"github.com/ethereum/go-ethereum/common"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func fp(size uint64, raw, stripped byte) fingerprint.Fingerprint {
	return fingerprint.Fingerprint{
		RawHash:      common.Hash{raw},
		StrippedHash: common.Hash{stripped},
		ByteSize:     size,
	}
}

// items models a sweep where runs above 1023 plateau, the optimizer
// disabled build is unique and both metadata modes share stripped hashes.
func items() []equivalence.Item {
	return []equivalence.Item{
		{Prefix: "embedded2147483647", Fingerprint: fp(100, 1, 10)},
		{Prefix: "embedded1048575", Fingerprint: fp(100, 1, 10)},
		{Prefix: "embedded1023", Fingerprint: fp(90, 2, 20)},
		{Prefix: "embeddednone", Fingerprint: fp(150, 3, 30)},
		{Prefix: "stripped2147483647", Fingerprint: fp(100, 4, 10)},
		{Prefix: "stripped1048575", Fingerprint: fp(100, 4, 10)},
		{Prefix: "stripped1023", Fingerprint: fp(90, 5, 20)},
		{Prefix: "strippednone", Fingerprint: fp(150, 6, 30)},
	}
}

// =============================================================================

func Test_GroupRaw(t *testing.T) {
	t.Log("Given a sweep grouped by raw hash.")
	{
		t.Logf("\tTest 0:\tWhen grouping eight variants.")
		{
			classes := equivalence.Group(items(), equivalence.Raw)

			if len(classes) != 6 {
				t.Fatalf("\t%s\tTest 0:\tShould get 6 classes, got %d.", failed, len(classes))
			}
			t.Logf("\t%s\tTest 0:\tShould get 6 classes.", success)

			first := classes[0].Members
			if len(first) != 2 || first[0] != "embedded2147483647" || first[1] != "embedded1048575" {
				t.Fatalf("\t%s\tTest 0:\tShould keep encounter order in the plateau class: %v", failed, first)
			}
			t.Logf("\t%s\tTest 0:\tShould keep encounter order in the plateau class.", success)

			if classes[3].Members[0] != "stripped2147483647" {
				t.Fatalf("\t%s\tTest 0:\tShould order classes by first occurrence.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould order classes by first occurrence.", success)
		}
	}
}

func Test_GroupStripped(t *testing.T) {
	t.Log("Given a sweep grouped by stripped hash.")
	{
		t.Logf("\tTest 0:\tWhen both metadata modes are present.")
		{
			classes := equivalence.Group(items(), equivalence.Stripped)

			if len(classes) != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould get 3 classes, got %d.", failed, len(classes))
			}
			t.Logf("\t%s\tTest 0:\tShould get 3 classes.", success)

			exp := []string{"embedded2147483647", "embedded1048575", "stripped2147483647", "stripped1048575"}
			got := classes[0].Members
			if len(got) != len(exp) {
				t.Fatalf("\t%s\tTest 0:\tShould merge the metadata modes: %v", failed, got)
			}
			for i := range exp {
				if got[i] != exp[i] {
					t.Fatalf("\t%s\tTest 0:\tShould merge the metadata modes in order: %v", failed, got)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould merge the metadata modes in order.", success)
		}
	}
}

func Test_RelationLaws(t *testing.T) {
	t.Log("Given the relation induced by size and hash equality.")
	{
		all := items()

		for _, choose := range []equivalence.HashChoice{equivalence.Raw, equivalence.Stripped} {
			t.Logf("\tTest %d:\tWhen checking the %s relation.", choose, choose)
			{
				classOf := make(map[string]int)
				for i, c := range equivalence.Group(all, choose) {
					for _, m := range c.Members {
						classOf[m] = i
					}
				}

				for _, a := range all {
					if !equivalence.Same(a, a, choose) {
						t.Fatalf("\t%s\tTest %d:\tShould be reflexive for %s.", failed, choose, a.Prefix)
					}

					for _, b := range all {
						ab := equivalence.Same(a, b, choose)
						if ab != equivalence.Same(b, a, choose) {
							t.Fatalf("\t%s\tTest %d:\tShould be symmetric.", failed, choose)
						}

						if ab != (classOf[a.Prefix] == classOf[b.Prefix]) {
							t.Fatalf("\t%s\tTest %d:\tShould share a class iff related.", failed, choose)
						}

						for _, c := range all {
							if ab && equivalence.Same(b, c, choose) && !equivalence.Same(a, c, choose) {
								t.Fatalf("\t%s\tTest %d:\tShould be transitive.", failed, choose)
							}
						}
					}
				}
				t.Logf("\t%s\tTest %d:\tShould satisfy the equivalence laws.", success, choose)
			}
		}
	}
}

func Test_Plateaus(t *testing.T) {
	t.Log("Given classes built from a runs sweep.")
	{
		t.Logf("\tTest 0:\tWhen computing the run ranges.")
		{
			plateaus := equivalence.Plateaus(equivalence.Group(items(), equivalence.Raw))

			if len(plateaus) != 4 {
				t.Fatalf("\t%s\tTest 0:\tShould skip the optimizer disabled classes, got %d.", failed, len(plateaus))
			}
			t.Logf("\t%s\tTest 0:\tShould skip the optimizer disabled classes.", success)

			if plateaus[0].MinRuns != 1048575 || plateaus[0].MaxRuns != 2147483647 {
				t.Fatalf("\t%s\tTest 0:\tShould get the plateau range: %+v", failed, plateaus[0])
			}
			t.Logf("\t%s\tTest 0:\tShould get the plateau range.", success)
		}
	}
}

func Test_WriteReport(t *testing.T) {
	t.Log("Given the need to persist a grouping report.")
	{
		t.Logf("\tTest 0:\tWhen writing one dataset.")
		{
			path := filepath.Join(t.TempDir(), "groups.json")
			ds := []equivalence.Dataset{
				{Name: "token", Classes: equivalence.Group(items(), equivalence.Raw)},
			}

			if err := equivalence.WriteReport(path, ds); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to write the report: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to write the report.", success)

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to read the report: %v", failed, err)
			}

			var doc map[string][]equivalence.ReportGroup
			if err := json.Unmarshal(data, &doc); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to decode the report: %v", failed, err)
			}

			groups, exists := doc["tokenGroups"]
			if !exists || len(groups) != 6 {
				t.Fatalf("\t%s\tTest 0:\tShould get tokenGroups with 6 entries.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get tokenGroups with 6 entries.", success)

			key := "100_" + common.Hash{1}.Hex()
			if groups[0].Key != key || groups[0].Size != 100 {
				t.Fatalf("\t%s\tTest 0:\tShould encode the key as size_hash: %s", failed, groups[0].Key)
			}
			t.Logf("\t%s\tTest 0:\tShould encode the key as size_hash.", success)
		}
	}
}
