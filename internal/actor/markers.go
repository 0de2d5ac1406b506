package actor

// InputBase can be embedded into input structs to satisfy Input.
type InputBase struct{}

func (InputBase) isInput() {}

// EffectBase can be embedded into effect structs to satisfy Effect.
type EffectBase struct{}

func (EffectBase) isEffect() {}
