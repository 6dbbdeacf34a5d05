package work

// DeepMerge combines base and override: nested maps merge
// recursively, non-map values on the right replace the left, and
// lists concatenate (base first). Used both for accumulating
// `results` across retries and for layering pipeline `defaults` onto
// a step's work template.
func DeepMerge(base, override map[string]interface{}) map[string]interface{} {
	if base == nil {
		base = map[string]interface{}{}
	}
	merged := make(map[string]interface{}, len(base))
	for k, v := range base {
		merged[k] = v
	}

	for k, overrideVal := range override {
		baseVal, exists := merged[k]
		if !exists {
			merged[k] = overrideVal
			continue
		}
		merged[k] = mergeValue(baseVal, overrideVal)
	}
	return merged
}

func mergeValue(base, override interface{}) interface{} {
	baseMap, baseIsMap := base.(map[string]interface{})
	overrideMap, overrideIsMap := override.(map[string]interface{})
	if baseIsMap && overrideIsMap {
		return DeepMerge(baseMap, overrideMap)
	}

	baseList, baseIsList := base.([]interface{})
	overrideList, overrideIsList := override.([]interface{})
	if baseIsList && overrideIsList {
		combined := make([]interface{}, 0, len(baseList)+len(overrideList))
		combined = append(combined, baseList...)
		combined = append(combined, overrideList...)
		return combined
	}

	return override
}
