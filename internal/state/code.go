package state

// Code identifies one schema or runtime fault class. The set is closed:
// every fault the engine can report maps to exactly one Code.
type Code uint8

const (
	CodeHexIllegalChar Code = iota
	CodeVarIllegalName
	CodeVarIllegalType
	CodeVarIllegalParserType
	CodeVarParamSize
	CodeVarParamValue
	CodeFrameIllegalName
	CodeFrameIllegalDataLen
	CodeSameName
	CodeSameFrameID
	CodeCANIDIllegalValue
	CodeArraySameFrameID
	CodeArrayParamValue
	CodeCmdIllegalName
	CodeCmdSameName
	CodeCmdCtrlData
	CodeDataAreaConflict
	CodeFloatSimplify
	CodeDoubleSimplify
	CodeRuntimeNoLink
	CodeRuntimeSizeOverflow
	CodeRuntimeSizeMismatch
	CodeRuntimeBadOrder
	CodeNoFrameID
	CodeSendStdFailed
	CodeSendFDFailed
	CodeSendUARTFailed
	CodeMixUsing

	codeMax // number of codes; keep last
)

var codeNames = [codeMax]string{
	CodeHexIllegalChar:       "hex_illegal_char",
	CodeVarIllegalName:       "var_illegal_name",
	CodeVarIllegalType:       "var_illegal_type",
	CodeVarIllegalParserType: "var_illegal_parser_type",
	CodeVarParamSize:         "var_param_size",
	CodeVarParamValue:        "var_param_value",
	CodeFrameIllegalName:     "frame_illegal_name",
	CodeFrameIllegalDataLen:  "frame_illegal_data_len",
	CodeSameName:             "same_name",
	CodeSameFrameID:          "same_frame_id",
	CodeCANIDIllegalValue:    "can_id_illegal_value",
	CodeArraySameFrameID:     "array_same_frame_id",
	CodeArrayParamValue:      "array_param_value",
	CodeCmdIllegalName:       "cmd_illegal_name",
	CodeCmdSameName:          "cmd_same_name",
	CodeCmdCtrlData:          "cmd_ctrl_data",
	CodeDataAreaConflict:     "data_area_conflict",
	CodeFloatSimplify:        "float_simplify",
	CodeDoubleSimplify:       "double_simplify",
	CodeRuntimeNoLink:        "runtime_no_link",
	CodeRuntimeSizeOverflow:  "runtime_size_overflow",
	CodeRuntimeSizeMismatch:  "runtime_size_mismatch",
	CodeRuntimeBadOrder:      "runtime_unexpected_order",
	CodeNoFrameID:            "no_frame_id",
	CodeSendStdFailed:        "send_std_failed",
	CodeSendFDFailed:         "send_fd_failed",
	CodeSendUARTFailed:       "send_uart_failed",
	CodeMixUsing:             "can_mix_using",
}

func (c Code) String() string {
	if int(c) < len(codeNames) && codeNames[c] != "" {
		return codeNames[c]
	}
	return "unknown_code"
}
