package model

// Need describes how strongly a social group in a given living situation
// needs a service type and how far its members are willing to travel.
// Zero minutes disable the corresponding mode. Intensity is stored on a
// 0-10 scale.
type Need struct {
	SocialGroup     string  `json:"social_group" yaml:"social_group"`
	LivingSituation string  `json:"living_situation" yaml:"living_situation"`
	ServiceType     string  `json:"service_type" yaml:"service_type"`
	WalkingMinutes  int     `json:"walking" yaml:"walking"`
	TransitMinutes  int     `json:"transit" yaml:"transit"`
	CarMinutes      int     `json:"car" yaml:"car"`
	Intensity       float64 `json:"intensity" yaml:"intensity"`
	Significance    float64 `json:"significance" yaml:"significance"`
}

// Minutes returns the travel budget for mode m.
func (n Need) Minutes(m Mode) int {
	switch m {
	case ModeWalking:
		return n.WalkingMinutes
	case ModeTransit:
		return n.TransitMinutes
	case ModeCar:
		return n.CarMinutes
	default:
		return 0
	}
}

// Inapplicable reports whether the need contributes nothing to a score.
func (n Need) Inapplicable() bool {
	if n.WalkingMinutes == 0 && n.TransitMinutes == 0 && n.CarMinutes == 0 {
		return true
	}
	return n.Intensity == 0 || n.Significance == 0
}

// Infrastructure binds a service type to its infrastructure and city function.
type Infrastructure struct {
	Infrastructure string `json:"infrastructure" yaml:"infrastructure"`
	Function       string `json:"function" yaml:"function"`
	ServiceType    string `json:"service_type" yaml:"service_type"`
}
