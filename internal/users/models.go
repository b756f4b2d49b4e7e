package users

type Grade string

const (
	GradeSeed     Grade = "SEED"
	GradeSprout   Grade = "SPROUT"
	GradeTree     Grade = "TREE"
	GradeFruit    Grade = "FRUIT"
	GradeMountain Grade = "MOUNTAIN"
)

// MaxExp is the experience at which the grade cycle wraps and GradeCount increments.
const MaxExp = 1000

var gradeThresholds = []struct {
	grade Grade
	exp   int
}{
	{GradeSeed, 0},
	{GradeSprout, 100},
	{GradeTree, 300},
	{GradeFruit, 500},
	{GradeMountain, 800},
}

type User struct {
	ID            string  `json:"userId"`
	Nickname      string  `json:"nickname"`
	ProfileImage  string  `json:"profileImage"`
	TotalDistance float64 `json:"totalDistance"`
	Exp           int     `json:"exp"`
	Grade         Grade   `json:"grade"`
	GradeCount    int     `json:"gradeCount"`
	IsAgree       bool    `json:"isAgree"`
}

type Friend struct {
	UserID     string `json:"userId"`
	Nickname   string `json:"nickname"`
	IsPossible bool   `json:"isPossible"`
}

// Progress is the experience state of a user.
type Progress struct {
	Exp        int
	Grade      Grade
	GradeCount int
}
