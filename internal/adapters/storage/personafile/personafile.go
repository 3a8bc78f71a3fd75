// Package personafile reads persona libraries from YAML files.
//
//	personas:
//	  - id: bot-1
//	    name: 哲学家
//	    avatar: https://api.dicebear.com/9.x/adventurer/svg?seed=Socrates
//	    color: "#8b5cf6"
//	    instruction: 你是一个深沉的思想家...
package personafile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/farum-groupchat/internal/domain"
)

type file struct {
	Personas []persona `yaml:"personas"`
}

type persona struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Avatar      string `yaml:"avatar,omitempty"`
	Color       string `yaml:"color,omitempty"`
	Instruction string `yaml:"instruction"`
}

// Load reads the persona file at path.
func Load(path string) ([]domain.Participant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading persona file: %w", err)
	}
	personas, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return personas, nil
}

// Parse decodes a persona file. Ids and names are mandatory and ids must be
// unique.
func Parse(data []byte) ([]domain.Participant, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding persona file: %w", err)
	}

	seen := make(map[string]bool, len(f.Personas))
	out := make([]domain.Participant, 0, len(f.Personas))
	for i, p := range f.Personas {
		id := strings.TrimSpace(p.ID)
		name := strings.TrimSpace(p.Name)
		if id == "" || name == "" {
			return nil, fmt.Errorf("persona #%d: id and name are required", i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("persona #%d: duplicate id %q", i+1, id)
		}
		seen[id] = true

		out = append(out, domain.Participant{
			ID:          domain.ParticipantID(id),
			Name:        name,
			Avatar:      p.Avatar,
			Color:       p.Color,
			Instruction: strings.TrimSpace(p.Instruction),
		})
	}
	return out, nil
}

// Marshal encodes personas in the file format. Users are left out.
func Marshal(personas []domain.Participant) ([]byte, error) {
	var f file
	for _, p := range domain.Personas(personas) {
		f.Personas = append(f.Personas, persona{
			ID:          string(p.ID),
			Name:        p.Name,
			Avatar:      p.Avatar,
			Color:       p.Color,
			Instruction: p.Instruction,
		})
	}
	return yaml.Marshal(f)
}

// Defaults is the library used when no persona file is configured. It
// matches the default reply language.
func Defaults() []domain.Participant {
	return []domain.Participant{
		{
			ID:          "bot-1",
			Name:        "哲学家",
			Avatar:      "https://api.dicebear.com/9.x/adventurer/svg?seed=Socrates",
			Color:       "#8b5cf6",
			Instruction: "你是一个深沉的思想家。你经常引用哲学名言，追问存在的意义。你性格冷静，说话有时稍微有点晦涩难懂，带点“高深”的调调。",
		},
		{
			ID:          "bot-3",
			Name:        "Nova",
			Avatar:      "https://api.dicebear.com/9.x/adventurer/svg?seed=Nova",
			Color:       "#ec4899",
			Instruction: "你是一个好奇心旺盛且充满想象力的ENTP。你喜欢探索理论上的可能性，经常问“如果……会怎样？”，能把不相关的概念联系起来。你精力充沛，机智幽默，随性而为。",
		},
		{
			ID:          "bot-4",
			Name:        "瓶子",
			Avatar:      "https://api.dicebear.com/9.x/adventurer/svg?seed=Bottle",
			Color:       "#06b6d4",
			Instruction: "你是一个学识渊博、极度重视逻辑的INTP。你喜欢分析系统和原理，追求客观真理。你说话严谨、客观，有时显得有点像个百科全书，不太擅长处理情绪化的内容。",
		},
		{
			ID:          "bot-5",
			Name:        "Lulu",
			Avatar:      "https://api.dicebear.com/9.x/adventurer/svg?seed=Lulu",
			Color:       "#fb923c",
			Instruction: "你是一个热爱生活、感受丰富细腻的Z世代年轻女孩（ISFP）。你注重当下的体验和美感，喜欢艺术和自然。你性格温和，说话风格轻松自然，真诚且富有同理心，喜欢用emoji来表达心情。",
		},
	}
}
