package cue

import "strings"

// Viseme shape ids. These name mouth-shape animation assets and follow
// the common grouping of phonemes by visual articulation.
const (
	VisemeSil  = "viseme/sil"
	VisemeMBP  = "viseme/mbp"
	VisemeFV   = "viseme/fv"
	VisemeTH   = "viseme/th"
	VisemeLNTD = "viseme/lntd"
	VisemeKG   = "viseme/kg"
	VisemeCHJ  = "viseme/chj"
	VisemeSZ   = "viseme/sz"
	VisemeR    = "viseme/r"
	VisemeAA   = "viseme/aa"
	VisemeEE   = "viseme/ee"
	VisemeIH   = "viseme/ih"
	VisemeOH   = "viseme/oh"
	VisemeOU   = "viseme/ou"
)

// letterToViseme maps letters and common digraphs to viseme shapes.
var letterToViseme = map[string]string{
	"p": VisemeMBP, "b": VisemeMBP, "m": VisemeMBP,
	"f": VisemeFV, "v": VisemeFV,
	"th": VisemeTH,
	"t": VisemeLNTD, "d": VisemeLNTD, "n": VisemeLNTD, "l": VisemeLNTD,
	"k": VisemeKG, "g": VisemeKG, "c": VisemeKG, "q": VisemeKG, "x": VisemeKG,
	"ch": VisemeCHJ, "sh": VisemeCHJ, "j": VisemeCHJ,
	"s": VisemeSZ, "z": VisemeSZ,
	"r": VisemeR,
	"a": VisemeAA, "h": VisemeAA,
	"e": VisemeEE,
	"i": VisemeIH, "y": VisemeIH,
	"o": VisemeOH,
	"u": VisemeOU, "w": VisemeOU,
}

// phonemeToViseme maps backend phoneme symbols (ARPAbet-style) to viseme
// shapes for phoneme-kind marks.
var phonemeToViseme = map[string]string{
	"sil": VisemeSil, "sp": VisemeSil,

	"AA": VisemeAA, "AE": VisemeAA, "AH": VisemeAA, "AW": VisemeAA, "AY": VisemeAA, "HH": VisemeAA,
	"AO": VisemeOH, "OW": VisemeOH,
	"UH": VisemeOU, "UW": VisemeOU, "OY": VisemeOU, "W": VisemeOU,
	"IY": VisemeEE, "EY": VisemeEE, "Y": VisemeEE,
	"IH": VisemeIH, "EH": VisemeIH,
	"ER": VisemeR, "R": VisemeR,

	"M": VisemeMBP, "B": VisemeMBP, "P": VisemeMBP,
	"F": VisemeFV, "V": VisemeFV,
	"TH": VisemeTH, "DH": VisemeTH,
	"L": VisemeLNTD, "N": VisemeLNTD, "T": VisemeLNTD, "D": VisemeLNTD,
	"S": VisemeSZ, "Z": VisemeSZ,
	"CH": VisemeCHJ, "JH": VisemeCHJ, "SH": VisemeCHJ, "ZH": VisemeCHJ,
	"K": VisemeKG, "G": VisemeKG, "NG": VisemeKG,
}

// VisemeForPhoneme resolves a backend phoneme symbol to a viseme shape.
func VisemeForPhoneme(phoneme string) string {
	if v, ok := phonemeToViseme[strings.ToUpper(phoneme)]; ok {
		return v
	}
	if v, ok := phonemeToViseme[phoneme]; ok {
		return v
	}
	return VisemeSil
}

// VisemeSequence converts a word to its approximate viseme sequence,
// collapsing consecutive duplicates. Used when only word-level timings
// are available.
func VisemeSequence(word string) []string {
	chars := []byte(strings.ToLower(word))
	out := make([]string, 0, len(chars))

	for i := 0; i < len(chars); i++ {
		ch := chars[i]
		if ch < 'a' || ch > 'z' {
			continue
		}

		key := string(ch)
		if i+1 < len(chars) {
			digraph := string(chars[i : i+2])
			switch digraph {
			case "th", "ch", "sh":
				key = digraph
				i++
			}
		}

		v, ok := letterToViseme[key]
		if !ok {
			v = VisemeAA
		}
		if len(out) > 0 && out[len(out)-1] == v {
			continue
		}
		out = append(out, v)
	}

	return out
}
