package inference

import (
	"reflect"
	"testing"
)

func TestBuildStopTokens(t *testing.T) {
	cases := []struct {
		name  string
		vocab []string
		eos   int
		want  []int
	}{
		{
			name:  "eos-and-im-end",
			vocab: []string{"a", "<eos>", "<|im_end|>"},
			eos:   1,
			want:  []int{1, 2},
		},
		{
			name:  "eos-is-im-end",
			vocab: []string{"a", "<|endoftext|>", "<|im_end|>"},
			eos:   2,
			want:  []int{2, 1},
		},
		{
			name:  "no-eos",
			vocab: []string{"a", "b", "c", "<|endoftext|>"},
			eos:   -1,
			want:  []int{3},
		},
		{
			name:  "nothing-known",
			vocab: []string{"a", "b"},
			eos:   -1,
			want:  []int{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := BuildStopTokens(newFakeTokenizer(tc.vocab...), tc.eos)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}
