package roomname

var adjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"golden", "silver", "crimson", "emerald", "purple", "bright", "gentle", "brave", "calm", "swift",
	"silent", "bouncy", "fuzzy", "plucky", "merry", "peppy",
}

var animals = []string{
	"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
	"raccoon", "beaver", "seahorse", "starfish", "dolphin", "whale", "narwhal", "penguin", "flamingo",
	"pelican", "sparrow", "robin", "toucan", "parrot", "canary",
}

var things = []string{
	"pancake", "waffle", "ramen", "taco", "dumpling", "noodle", "muffin", "biscuit", "cupcake", "toffee",
	"comet", "orbit", "nebula", "canyon", "ridge", "lantern", "pebble", "puddle", "rocket", "thimble",
	"meadow", "willow", "ember", "breeze", "maple",
}
