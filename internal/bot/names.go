package bot

import (
	"fmt"
	"math/rand"
)

// Nicknames is a curated list of names bots sit at the table with
var Nicknames = []string{
	// Lab
	"pipette", "petri", "beaker", "swab", "scalpel",
	"vial", "centrifuge", "microscope", "syringe", "bunsen",

	// Animals
	"falcon", "wolf", "panther", "cobra", "octopus",
	"scorpion", "beetle", "heron", "otter", "lynx",

	// Weather
	"thunder", "tornado", "glacier", "meteor", "aurora",
	"monsoon", "drizzle", "blizzard", "zephyr", "squall",

	// Objects
	"compass", "lantern", "whistle", "umbrella", "hourglass",
	"anchor", "kettle", "thimble", "locket", "sextant",
}

// Avatars are the avatar ids bots choose from
var Avatars = []string{
	"mask", "goggles", "gloves", "hazmat", "stethoscope", "helmet",
}

// RandomNickname returns a nickname that is not in taken. When every name
// is taken a numbered one is returned.
func RandomNickname(rng *rand.Rand, taken []string) string {
	takenSet := make(map[string]bool, len(taken))
	for _, n := range taken {
		takenSet[n] = true
	}

	for _, i := range rng.Perm(len(Nicknames)) {
		if !takenSet[Nicknames[i]] {
			return Nicknames[i]
		}
	}

	// Fallback: number a random name
	return fmt.Sprintf("%s-%d", Nicknames[rng.Intn(len(Nicknames))], len(taken)+1)
}

// RandomAvatar returns a random avatar id
func RandomAvatar(rng *rand.Rand) string {
	return Avatars[rng.Intn(len(Avatars))]
}
